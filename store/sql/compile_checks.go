package sqlstore

import (
	"github.com/goliatone/go-wallet-provisioning/core"
	"github.com/goliatone/go-wallet-provisioning/ratelimit"
	"github.com/goliatone/go-wallet-provisioning/webhooks"
)

var (
	_ core.ActivitySink            = (*ActivityStore)(nil)
	_ core.ActivityReader          = (*ActivityStore)(nil)
	_ core.ActivityStore           = (*ActivityStore)(nil)
	_ core.ActivityRetentionPruner = (*ActivityStore)(nil)
	_ webhooks.DeliveryLedger      = (*WebhookDeliveryStore)(nil)
	_ ratelimit.StateStore         = (*RateLimitStateStore)(nil)
)
