package models

// All lists every persisted model, in dependency order. Used by AutoMigrate in
// sqlite mode and by tests.
func All() []any {
	return []any{
		&ProductVariant{},
		&Cart{},
		&CartItem{},
		&Coupon{},
		&PriceOffer{},
		&TaxRule{},
		&ShippingMethod{},
		&InventoryReservation{},
		&InventoryLedgerEntry{},
		&PriceSnapshot{},
		&FraudCheck{},
		&PaymentVelocityRecord{},
		&BlockedEntity{},
		&CheckoutSession{},
		&Order{},
		&OrderItem{},
		&AuditEntry{},
		&OutboxEvent{},
	}
}
