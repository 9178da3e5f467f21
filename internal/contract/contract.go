// Package contract loads the static field contract that extraction and
// validation run against. The contract is read once at process start and is
// immutable afterwards.
package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/sunfield-ops/solarledger/internal/model"
)

// FieldType is the primitive type a contract field must carry.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeDate   FieldType = "date"
)

// Field declares one contract field.
type Field struct {
	Name     string    `yaml:"name" json:"name"`
	Type     FieldType `yaml:"type" json:"type"`
	Required bool      `yaml:"required" json:"required"`
	// Hint is appended to the extraction prompt for this field.
	Hint string `yaml:"hint,omitempty" json:"hint,omitempty"`
}

// Contract is the full field contract: the declared fields plus which two
// date fields bound the validity window.
type Contract struct {
	Fields      []Field `yaml:"fields" json:"fields"`
	WindowStart string  `yaml:"window_start" json:"window_start"`
	WindowEnd   string  `yaml:"window_end" json:"window_end"`

	byName map[string]Field
}

// metaSchema shape-checks a contract document before we trust it. Catching a
// typoed type name here beats silently treating every value as valid later.
const metaSchema = `{
	"type": "object",
	"required": ["fields", "window_start", "window_end"],
	"properties": {
		"fields": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "type"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"type": {"enum": ["string", "number", "date"]},
					"required": {"type": "boolean"},
					"hint": {"type": "string"}
				}
			}
		},
		"window_start": {"type": "string", "minLength": 1},
		"window_end": {"type": "string", "minLength": 1}
	}
}`

var compiledMeta = jsonschema.MustCompileString("contract-meta.json", metaSchema)

// Default returns the built-in inverter maintenance contract.
func Default() *Contract {
	c := &Contract{
		Fields: []Field{
			{Name: model.FieldSupplierName, Type: TypeString, Required: true, Hint: "Name of the supplier/manufacturer"},
			{Name: model.FieldProductCode, Type: TypeString, Required: true, Hint: "Product code or model number of the inverter"},
			{Name: model.FieldDescription, Type: TypeString, Required: true, Hint: "Description of the inverter product"},
			{Name: model.FieldStartupVoltage, Type: TypeString, Required: true, Hint: `Startup voltage setting in volts (e.g. "150V")`},
			{Name: model.FieldFirmwareVersion, Type: TypeString, Required: true, Hint: `Firmware version number (e.g. "v2.1.4")`},
			{Name: model.FieldValidFrom, Type: TypeDate, Required: true, Hint: "Start of the period the settings were active (ISO format)"},
			{Name: model.FieldValidTo, Type: TypeDate, Required: true, Hint: "End of the period the settings were active (ISO format)"},
			{Name: "unit_price", Type: TypeNumber, Required: false, Hint: "Price per unit"},
			{Name: "currency", Type: TypeString, Required: false, Hint: "Currency code for the price"},
			{Name: "effective_date", Type: TypeDate, Required: false, Hint: "Date the pricing/configuration became effective"},
		},
		WindowStart: model.FieldValidFrom,
		WindowEnd:   model.FieldValidTo,
	}
	c.index()
	return c
}

// Load reads a contract from a YAML file. An empty path returns the
// built-in default.
func Load(path string) (*Contract, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "contract: read %s", path)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrapf(err, "contract: parse %s", path)
	}
	if err := validateShape(doc); err != nil {
		return nil, eris.Wrapf(err, "contract: invalid contract %s", path)
	}

	var c Contract
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, eris.Wrapf(err, "contract: decode %s", path)
	}

	if _, ok := c.lookup(c.WindowStart); !ok {
		return nil, eris.Errorf("contract: window_start %q is not a declared field", c.WindowStart)
	}
	if _, ok := c.lookup(c.WindowEnd); !ok {
		return nil, eris.Errorf("contract: window_end %q is not a declared field", c.WindowEnd)
	}
	for _, name := range []string{c.WindowStart, c.WindowEnd} {
		if f, _ := c.lookup(name); f.Type != TypeDate || !f.Required {
			return nil, eris.Errorf("contract: window field %q must be a required date field", name)
		}
	}

	c.index()
	return &c, nil
}

// validateShape runs the meta-schema over the decoded YAML document. The
// document is round-tripped through JSON because the schema library only
// accepts JSON-typed values.
func validateShape(doc any) error {
	buf, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "marshal for shape check")
	}
	var jsonDoc any
	if err := json.Unmarshal(bytes.TrimSpace(buf), &jsonDoc); err != nil {
		return eris.Wrap(err, "unmarshal for shape check")
	}
	if err := compiledMeta.Validate(jsonDoc); err != nil {
		return eris.Wrap(err, "shape check")
	}
	return nil
}

func (c *Contract) index() {
	c.byName = make(map[string]Field, len(c.Fields))
	for _, f := range c.Fields {
		c.byName[f.Name] = f
	}
}

func (c *Contract) lookup(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Lookup returns the declaration for a field name.
func (c *Contract) Lookup(name string) (Field, bool) {
	f, ok := c.byName[name]
	return f, ok
}

// Known reports whether the contract declares the field.
func (c *Contract) Known(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Required returns the names of all required fields in declaration order.
func (c *Contract) Required() []string {
	var names []string
	for _, f := range c.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// PromptFields renders the field list for the extraction prompt, one line
// per field with its type and hint.
func (c *Contract) PromptFields() string {
	var b strings.Builder
	for _, f := range c.Fields {
		kind := string(f.Type)
		if f.Type == TypeDate {
			kind = "string (ISO date-time)"
		}
		if !f.Required {
			kind += ", optional"
		}
		fmt.Fprintf(&b, "- %s: %s", f.Name, kind)
		if f.Hint != "" {
			fmt.Fprintf(&b, " (%s)", f.Hint)
		}
		b.WriteString("\n")
	}
	return b.String()
}
