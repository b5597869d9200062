package printer

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/models"
)

// Physical label size in millimetres (landscape roll label)
const (
	LabelWidth  = 89.0
	LabelHeight = 28.0
)

// Element is a positioned box on the label, in mm from the top-left corner
type Element struct {
	Name     string
	Text     string
	X, Y     float64
	W, H     float64
	FontSize float64
	Align    string
	QR       bool
}

// Layout is the device-independent description of one label
type Layout struct {
	Width    float64
	Height   float64
	Elements []Element
}

// Validate rejects layouts whose elements fall outside the label
func (l Layout) Validate() error {
	for _, e := range l.Elements {
		if e.W <= 0 || e.H <= 0 {
			return errs.Validation("label element %s has no area", e.Name)
		}
		if e.X < 0 || e.Y < 0 || e.X+e.W > l.Width || e.Y+e.H > l.Height {
			return errs.Validation("label element %s (%.1f,%.1f %.1fx%.1f) exceeds %.0fx%.0f mm",
				e.Name, e.X, e.Y, e.W, e.H, l.Width, l.Height)
		}
	}
	return nil
}

// LabelData is what gets printed for one product
type LabelData struct {
	Reference   string
	Description string
	Location    string
	Barcode     string
}

// DataFor extracts the printable fields of a stored label
func DataFor(l models.PrintLabel) LabelData {
	return LabelData{
		Reference:   l.Reference,
		Description: l.Description,
		Location:    l.Location,
		Barcode:     l.Barcode,
	}
}

// maxDescription keeps the description on one line at the chosen font size
const maxDescription = 38

// BuildLayout places QR code, location, reference, description and barcode text
func BuildLayout(d LabelData) Layout {
	desc := d.Description
	if r := []rune(desc); len(r) > maxDescription {
		desc = string(r[:maxDescription-1]) + "…"
	}

	const qr = 24.0
	const textX = 2 + qr + 2
	textW := LabelWidth - textX - 2

	return Layout{
		Width:  LabelWidth,
		Height: LabelHeight,
		Elements: []Element{
			{Name: "qr", Text: d.Barcode, X: 2, Y: 2, W: qr, H: qr, QR: true},
			{Name: "location", Text: d.Location, X: textX, Y: 2, W: textW, H: 9, FontSize: 22, Align: "L"},
			{Name: "reference", Text: d.Reference, X: textX, Y: 11.5, W: textW, H: 5, FontSize: 10, Align: "L"},
			{Name: "description", Text: desc, X: textX, Y: 16.5, W: textW, H: 4.5, FontSize: 7, Align: "L"},
			{Name: "barcode", Text: d.Barcode, X: textX, Y: 21.5, W: textW, H: 4.5, FontSize: 8, Align: "L"},
		},
	}
}

// Renderer draws labels as a PDF, one page per label
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render implements printqueue.Renderer
func (r *Renderer) Render(labels []models.PrintLabel) ([]byte, error) {
	if len(labels) == 0 {
		return nil, errs.Validation("nothing to render")
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: LabelWidth, Ht: LabelHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, l := range labels {
		layout := BuildLayout(DataFor(l))
		if err := layout.Validate(); err != nil {
			return nil, err
		}

		pdf.AddPage()
		for _, e := range layout.Elements {
			if e.QR {
				if err := drawQR(pdf, fmt.Sprintf("qr_%d", i), e); err != nil {
					return nil, err
				}
				continue
			}
			pdf.SetFont("Arial", "B", e.FontSize)
			pdf.SetXY(e.X, e.Y)
			pdf.CellFormat(e.W, e.H, tr(e.Text), "", 0, e.Align, false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errs.Wrap(err, "render label pdf")
	}
	return buf.Bytes(), nil
}

func drawQR(pdf *gofpdf.Fpdf, name string, e Element) error {
	if e.Text == "" {
		return errs.Validation("label has no barcode to encode")
	}
	png, err := qrcode.Encode(e.Text, qrcode.Medium, 256)
	if err != nil {
		return errs.Wrap(err, "encode qr")
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	pdf.ImageOptions(name, e.X, e.Y, e.W, e.H, false, opts, 0, "")
	return pdf.Error()
}
