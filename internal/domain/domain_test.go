package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompanyKey(t *testing.T) {
	c := Company{Name: "Acme, Inc."}
	assert.Equal(t, "acme", c.Key())

	withDomain := Company{Name: "Acme, Inc.", Domain: "www.Acme.com"}
	assert.Equal(t, "acmecom", withDomain.Key())
}

func TestProspectValid(t *testing.T) {
	base := Prospect{EmailGenerationStatus: EmailNotGenerated, EmailDeliveryStatus: DeliveryNotSent}
	assert.True(t, base.Valid())

	invalidSent := Prospect{
		EmailGenerationStatus: EmailNotGenerated,
		EmailDeliveryStatus:   DeliverySent,
	}
	assert.False(t, invalidSent.Valid())

	now := time.Now()
	invalidOrder := Prospect{
		EmailGenerationStatus: EmailGenerated,
		EmailDeliveryStatus:   DeliverySent,
		GeneratedAt:           now,
		SentAt:                now.Add(-time.Hour),
	}
	assert.False(t, invalidOrder.Valid())

	valid := Prospect{
		EmailGenerationStatus: EmailSent,
		EmailDeliveryStatus:   DeliverySent,
		GeneratedAt:           now,
		SentAt:                now.Add(time.Hour),
		EmailConfidence:       0.8,
	}
	assert.True(t, valid.Valid())
}

func TestProspectDedupKey(t *testing.T) {
	a := Prospect{Name: "Jane Doe", Company: "Acme Inc"}
	b := Prospect{Name: "jane doe", Company: "ACME, INC."}
	assert.Equal(t, a.DedupKey(), b.DedupKey())
}
