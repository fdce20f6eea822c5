package entity

// CartLine is one client-submitted cart row. Price is advisory only; the
// validator recomputes the authoritative value.
type CartLine struct {
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
	UnitMinor    int64  `json:"unit_minor"`
	ProductName  string `json:"product_name,omitempty"`
	ProductImage string `json:"product_image,omitempty"`
}

// ValidatedItem is a cart line after authoritative re-pricing.
type ValidatedItem struct {
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	UnitMinor   int64  `json:"unit_minor"`
	PriceListID string `json:"price_list_id,omitempty"`
}

// PriceMismatch records a client price the validator silently overrode.
type PriceMismatch struct {
	ProductID     string `json:"product_id"`
	ClientMinor   int64  `json:"had"`
	ExpectedMinor int64  `json:"expected"`
	PriceListID   string `json:"price_list_id,omitempty"`
}

// StockShortfall blocks checkout; Suggested is the clamped quantity the
// caller may resubmit with.
type StockShortfall struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Suggested int    `json:"suggested"`
}

type ValidationResult struct {
	OK            bool             `json:"ok"`
	Items         []ValidatedItem  `json:"items"`
	Mismatches    []PriceMismatch  `json:"mismatches"`
	Shortfalls    []StockShortfall `json:"stock_issues"`
	SubtotalMinor int64            `json:"subtotal_minor"`
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Address struct {
	FullName string `json:"full_name,omitempty"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	Postcode string `json:"postcode,omitempty"`
	Country  string `json:"country"`
}

type CheckoutRequest struct {
	UserID          string       `json:"user_id,omitempty"`
	Customer        CustomerInfo `json:"customer"`
	ShippingAddress *Address     `json:"shipping_address"`
	BillingAddress  *Address     `json:"billing_address,omitempty"`
	Items           []CartLine   `json:"items"`
	ShippingMethod  string       `json:"shipping_method,omitempty"`
	ConsentKVKK     bool         `json:"consent_kvkk,omitempty"`
	ConsentTerms    bool         `json:"consent_terms,omitempty"`
}

type CheckoutResult struct {
	OrderID        string `json:"order_id"`
	ConversationID string `json:"conversation_id"`
	PaymentToken   string `json:"payment_token"`
	RedirectURL    string `json:"redirect_url"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
}
