package models

// Product is the inventory-bearing subset of a storefront product.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Stock int    `json:"stock"`

	extra extraFields
}

func (p *Product) UnmarshalJSON(data []byte) error {
	type alias Product
	var a alias
	extra, err := decodeWithExtras(data, &a)
	if err != nil {
		return err
	}
	*p = Product(a)
	p.extra = extra
	return nil
}

func (p Product) MarshalJSON() ([]byte, error) {
	type alias Product
	return encodeWithExtras(alias(p), p.extra)
}

// ProductCollection is the on-disk shape of the products document.
type ProductCollection struct {
	Products []Product `json:"products"`
}
