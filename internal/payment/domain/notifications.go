package domain

// Push notification types, published on the user's topic.
const (
	NotifyPaymentSucceeded = "payment_succeeded"
	NotifyPaymentFailed    = "payment_failed"
	NotifyPaymentRefunded  = "payment_refunded"
	NotifyOrderCreated     = "order_created"
)

// Email templates rendered by the dispatcher.
const (
	TemplatePaymentConfirmation = "payment_confirmation"
	TemplatePaymentReceipt      = "payment_receipt"
	TemplatePaymentFailed       = "payment_failed"
	TemplateRefundNotice        = "refund_notice"
	TemplateDisputeNotice       = "dispute_notice"
	TemplateOrderWon            = "order_won"
	TemplateOrderSold           = "order_sold"
)
