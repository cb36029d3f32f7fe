package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionData_Decode(t *testing.T) {
	raw := []byte(`{
		"id": "sub_1",
		"customer": {"id": "cus_1", "object": "customer"},
		"status": "active",
		"cancel_at_period_end": true,
		"cancel_at": 1735689600,
		"canceled_at": null,
		"ended_at": null,
		"start_date": 1700000000,
		"latest_invoice": "in_9",
		"metadata": {"user_id": "42"}
	}`)

	var data SubscriptionData
	require.NoError(t, json.Unmarshal(raw, &data))

	assert.Equal(t, "sub_1", data.ID)
	assert.Equal(t, "in_9", string(data.LatestInvoice))
	assert.True(t, data.CancelAtPeriodEnd)
	require.NotNil(t, data.CancelAt.Time())
	assert.Equal(t, int64(1735689600), data.CancelAt.Time().Unix())
	assert.Nil(t, data.CanceledAt.Time())
	assert.Equal(t, CustomerRef{CustomerID: "cus_1", UserID: 42}, data.CustomerRef())
}

func TestInvoiceData_ParentSubscriptionDetails(t *testing.T) {
	raw := []byte(`{
		"id": "in_1",
		"customer": "cus_1",
		"subscription": null,
		"parent": {
			"subscription_details": {
				"subscription": "sub_7",
				"metadata": {"user_id": "5"}
			}
		},
		"total": 1999,
		"amount_paid": 0
	}`)

	var data InvoiceData
	require.NoError(t, json.Unmarshal(raw, &data))

	assert.Equal(t, "sub_7", data.SubscriptionID())
	assert.Equal(t, CustomerRef{CustomerID: "cus_1", UserID: 5}, data.CustomerRef())
}

func TestInvoiceData_TopLevelSubscription(t *testing.T) {
	var data InvoiceData
	require.NoError(t, json.Unmarshal([]byte(`{"id":"in_1","customer":"cus_1","subscription":"sub_1","metadata":{"user_id":"oops"}}`), &data))

	assert.Equal(t, "sub_1", data.SubscriptionID())
	assert.Equal(t, uint(0), data.CustomerRef().UserID)
}

func TestExpandableID_Null(t *testing.T) {
	var data SubscriptionData
	require.NoError(t, json.Unmarshal([]byte(`{"id":"sub_1","customer":null,"latest_invoice":null}`), &data))
	assert.Empty(t, string(data.Customer))
	assert.Empty(t, string(data.LatestInvoice))
}
