package odoo

import (
	"context"
	"fmt"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/models"
)

const productModel = "product.product"

var productFields = []string{"id", "default_code", "barcode", "name", "qty_available", "active", "write_date"}

// ERP adapts the generic client to the product operations the sync engine needs
type ERP struct {
	client        *Client
	locationField string
}

func NewERP(client *Client, locationField string) *ERP {
	if locationField == "" {
		locationField = "x_location"
	}
	return &ERP{client: client, locationField: locationField}
}

func (e *ERP) searchOne(ctx context.Context, domain []interface{}, key interface{}) (*models.ErpProduct, error) {
	// Archived products must stay visible so deactivation can be mirrored
	domain = append(domain, []interface{}{"active", "in", []interface{}{true, false}})

	var products []models.ErpProduct
	if err := e.client.SearchRead(ctx, productModel, domain, productFields, 1, &products); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, errs.NotFound("erp product", key)
	}
	return &products[0], nil
}

// SearchProductByErpID fetches one product by its ERP id
func (e *ERP) SearchProductByErpID(ctx context.Context, erpID int64) (*models.ErpProduct, error) {
	return e.searchOne(ctx, []interface{}{[]interface{}{"id", "=", erpID}}, erpID)
}

// SearchProductByBarcode fetches one product by barcode
func (e *ERP) SearchProductByBarcode(ctx context.Context, barcode string) (*models.ErpProduct, error) {
	return e.searchOne(ctx, []interface{}{[]interface{}{"barcode", "=", barcode}}, barcode)
}

type templateRef struct {
	ID            int64         `json:"id"`
	ProductTmplID []interface{} `json:"product_tmpl_id"`
}

// UpdateStock sets the on-hand quantity through the stock.change.product.qty wizard
func (e *ERP) UpdateStock(ctx context.Context, erpID int64, qty float64) error {
	var refs []templateRef
	if err := e.client.Read(ctx, productModel, []int64{erpID}, []string{"product_tmpl_id"}, &refs); err != nil {
		return err
	}
	if len(refs) == 0 || len(refs[0].ProductTmplID) == 0 {
		return errs.NotFound("erp product", erpID)
	}
	tmplID, ok := refs[0].ProductTmplID[0].(float64)
	if !ok {
		return errs.Newf("unexpected product_tmpl_id %v", refs[0].ProductTmplID[0])
	}

	wizardID, err := e.client.Create(ctx, "stock.change.product.qty", map[string]interface{}{
		"product_id":      erpID,
		"product_tmpl_id": int64(tmplID),
		"new_quantity":    qty,
	})
	if err != nil {
		return err
	}

	if _, err := e.client.CallMethod(ctx, "stock.change.product.qty", "action_change_product_qty", []int64{wizardID}); err != nil {
		return err
	}
	return nil
}

// UpdateLocation writes the location code into the configured product field
func (e *ERP) UpdateLocation(ctx context.Context, erpID int64, location string) error {
	return e.client.Write(ctx, productModel, []int64{erpID}, map[string]interface{}{
		e.locationField: location,
	})
}

// TestConnection checks the endpoint is reachable and the credentials are accepted
func (e *ERP) TestConnection(ctx context.Context) (*models.ErpSystemInfo, error) {
	version, err := e.client.Version(ctx)
	if err != nil {
		return nil, err
	}

	e.client.invalidate()
	uid, err := e.client.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	return &models.ErpSystemInfo{
		ServerVersion: fmt.Sprint(version["server_version"]),
		Database:      e.client.Database,
		UID:           uid,
	}, nil
}
