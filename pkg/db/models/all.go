package models

// All lists every persisted model, in dependency order, for sqlite auto-migration.
func All() []any {
	return []any{
		&Cart{},
		&CartLine{},
		&Order{},
		&OrderLine{},
		&Payment{},
		&PaymentAttempt{},
		&PurchasedItem{},
		&Notification{},
		&Rating{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
