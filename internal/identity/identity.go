// Package identity derives the logical component key a validated record
// belongs to. Records whose keys normalize equal are tracked on the same
// timeline; this equality contract is what the merger depends on.
package identity

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/sunfield-ops/solarledger/internal/model"
)

// ErrUnresolvable is returned when a record has no usable supplier or
// product code after normalization.
var ErrUnresolvable = eris.New("identity: cannot resolve component identity")

// Resolve builds the component identity from supplier_name and
// product_code. The key is trim-collapsed and case-folded; the displayed
// supplier and product code keep the record's original casing.
func Resolve(rec *model.ValidatedRecord) (model.ComponentIdentity, error) {
	supplier := collapse(rec.StringField(model.FieldSupplierName))
	product := collapse(rec.StringField(model.FieldProductCode))

	if supplier == "" || product == "" {
		return model.ComponentIdentity{}, eris.Wrapf(ErrUnresolvable,
			"supplier=%q product_code=%q from %s", supplier, product, rec.SourceFile)
	}

	return model.ComponentIdentity{
		Key:         Key(supplier, product),
		Supplier:    supplier,
		ProductCode: product,
	}, nil
}

// Key returns the normalized comparison key for a supplier/product pair.
// A fresh Caser per call: cases.Caser carries internal state and is not
// safe for concurrent use.
func Key(supplier, product string) string {
	fold := cases.Fold()
	return fold.String(collapse(supplier)) + "::" + fold.String(collapse(product))
}

// collapse trims the string and squeezes internal whitespace runs to a
// single space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
