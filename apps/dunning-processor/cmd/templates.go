package main

import (
	"fmt"

	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/notifications"
)

// emailTemplates renders the notification kinds that reach the email
// channel by default (payment failed, tax notification, subscription
// credited) plus team and organization invites, which reach it only
// for users who enable email for them. Deliveries of kinds with no
// entry here are marked DeliverySkippedDefault by the worker.
func emailTemplates() map[db.NotificationBodyKind]notifications.Template {
	return map[db.NotificationBodyKind]notifications.Template{
		db.NotifyPaymentFailed: {
			Subject: "Your payment didn't go through",
			Render: func(n db.Notification) (string, error) {
				chargeID, _ := n.Body.Fields["charge_id"]
				return fmt.Sprintf("<p>We weren't able to process your payment for charge %v. Please update your payment method to avoid a service interruption.</p>", chargeID), nil
			},
		},
		db.NotifyTaxNotification: {
			Subject: "There's an issue with a recent tax calculation",
			Render: func(n db.Notification) (string, error) {
				message, _ := n.Body.Fields["message"]
				return fmt.Sprintf("<p>%v</p>", message), nil
			},
		},
		db.NotifySubscriptionCredited: {
			Subject: "You've received a subscription credit",
			Render: func(n db.Notification) (string, error) {
				return "<p>A credit has been applied to your account following a plan change.</p>", nil
			},
		},
		db.NotifyTeamInvite: {
			Subject: "You've been invited to a team",
			Render: func(n db.Notification) (string, error) {
				return "<p>You have a pending team invitation waiting for you on Labrinth.</p>", nil
			},
		},
		db.NotifyOrganizationInvite: {
			Subject: "You've been invited to an organization",
			Render: func(n db.Notification) (string, error) {
				return "<p>You have a pending organization invitation waiting for you on Labrinth.</p>", nil
			},
		},
	}
}
