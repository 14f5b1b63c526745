package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labrinth-gg/labrinth/libs/go/db"
)

func TestEmailTemplatesRenderKnownKinds(t *testing.T) {
	templates := emailTemplates()

	cases := []struct {
		kind   db.NotificationBodyKind
		fields map[string]interface{}
		want   string
	}{
		{db.NotifyPaymentFailed, map[string]interface{}{"charge_id": int64(42)}, "charge 42"},
		{db.NotifyTaxNotification, map[string]interface{}{"message": "manual review required"}, "manual review required"},
	}

	for _, tc := range cases {
		tpl, ok := templates[tc.kind]
		require.True(t, ok, "expected a template for %s", tc.kind)
		assert.NotEmpty(t, tpl.Subject)

		body, err := tpl.Render(db.Notification{
			Body: db.NotificationBody{Kind: tc.kind, Fields: tc.fields},
		})
		require.NoError(t, err)
		assert.Contains(t, body, tc.want)
	}
}

func TestEmailTemplatesSkipUnknownKind(t *testing.T) {
	templates := emailTemplates()
	_, ok := templates[db.NotificationBodyKind("unknown")]
	assert.False(t, ok)
}
