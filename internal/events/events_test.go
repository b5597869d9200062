package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/models"
)

func TestPublishLocationChanged(t *testing.T) {
	producer := mocks.NewSyncProducer(t, ProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev LocationChanged
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.EventType != EventTypeLocationChanged || ev.ProductID != 7 || *ev.NewLocation != "B215" {
			return errs.Newf("unexpected event %+v", ev)
		}
		return nil
	})

	pub := NewKafkaPublisher(producer, "colocacion.location_changed")
	err := pub.PublishLocationChanged(context.Background(), LocationChanged{
		ProductID:   7,
		Barcode:     "1234567890123",
		OldLocation: models.StringPtr("A010"),
		NewLocation: models.StringPtr("B215"),
		ActorID:     "user-1",
	})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestPublishFailureIsExternal(t *testing.T) {
	producer := mocks.NewSyncProducer(t, ProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisher(producer, "topic")
	err := pub.PublishLocationChanged(context.Background(), LocationChanged{ProductID: 1})
	assert.True(t, errs.Is(err, errs.ErrExternal))
	require.NoError(t, pub.Close())
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	pub, err := New(config.KafkaConfig{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, pub)
	assert.NoError(t, pub.PublishLocationChanged(context.Background(), LocationChanged{}))
}
