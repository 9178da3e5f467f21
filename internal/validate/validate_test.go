package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunfield-ops/solarledger/internal/contract"
	"github.com/sunfield-ops/solarledger/internal/model"
)

func candidate(overrides map[string]any) *model.CandidateRecord {
	fields := map[string]any{
		model.FieldSupplierName:    "SMA Solar",
		model.FieldProductCode:     "SB-5000TL",
		model.FieldDescription:     "5kW string inverter",
		model.FieldStartupVoltage:  "150V",
		model.FieldFirmwareVersion: "v2.1.4",
		model.FieldValidFrom:       "2024-01-01",
		model.FieldValidTo:         "2024-06-30",
	}
	for k, v := range overrides {
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	return &model.CandidateRecord{
		SourceFile:  "report.pdf",
		ExtractedAt: time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC),
		Fields:      fields,
	}
}

func kinds(t *testing.T, err error) map[ViolationKind][]string {
	t.Helper()
	var verr *Error
	require.ErrorAs(t, err, &verr)
	out := make(map[ViolationKind][]string)
	for _, v := range verr.Violations {
		out[v.Kind] = append(out[v.Kind], v.Field)
	}
	return out
}

func TestValidateAcceptsCompleteRecord(t *testing.T) {
	rec, err := Validate(contract.Default(), candidate(nil))

	require.NoError(t, err)
	assert.Equal(t, "report.pdf", rec.SourceFile)
	assert.Equal(t, "SMA Solar", rec.StringField(model.FieldSupplierName))
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), rec.ValidFrom)
	assert.Equal(t, time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC), rec.ValidTo)
}

func TestValidateMissingRequiredField(t *testing.T) {
	_, err := Validate(contract.Default(), candidate(map[string]any{
		model.FieldFirmwareVersion: nil,
	}))

	got := kinds(t, err)
	assert.Equal(t, []string{model.FieldFirmwareVersion}, got[MissingField])
}

func TestValidateBlankStringTreatedAsMissing(t *testing.T) {
	_, err := Validate(contract.Default(), candidate(map[string]any{
		model.FieldDescription: "   ",
	}))

	got := kinds(t, err)
	assert.Equal(t, []string{model.FieldDescription}, got[MissingField])
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	_, err := Validate(contract.Default(), candidate(map[string]any{
		model.FieldSupplierName:    nil,
		model.FieldFirmwareVersion: nil,
		model.FieldValidFrom:       "not a date",
	}))

	got := kinds(t, err)
	assert.ElementsMatch(t, []string{model.FieldSupplierName, model.FieldFirmwareVersion}, got[MissingField])
	assert.Equal(t, []string{model.FieldValidFrom}, got[TypeMismatch])
}

func TestValidateMismatchNotDoubleReportedAsMissing(t *testing.T) {
	_, err := Validate(contract.Default(), candidate(map[string]any{
		model.FieldValidTo: "13/01/2024",
	}))

	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, TypeMismatch, verr.Violations[0].Kind)
}

func TestValidateUnknownFieldsBecomeExtras(t *testing.T) {
	rec, err := Validate(contract.Default(), candidate(map[string]any{
		"warranty_years": float64(10),
	}))

	require.NoError(t, err)
	assert.NotContains(t, rec.Fields, "warranty_years")
	assert.Equal(t, float64(10), rec.Extras["warranty_years"])
}

func TestValidateInvalidWindow(t *testing.T) {
	_, err := Validate(contract.Default(), candidate(map[string]any{
		model.FieldValidFrom: "2024-06-30",
		model.FieldValidTo:   "2024-01-01",
	}))

	got := kinds(t, err)
	assert.Len(t, got[InvalidWindow], 1)
}

func TestValidateEqualWindowBoundsRejected(t *testing.T) {
	_, err := Validate(contract.Default(), candidate(map[string]any{
		model.FieldValidFrom: "2024-01-01",
		model.FieldValidTo:   "2024-01-01",
	}))

	got := kinds(t, err)
	assert.Len(t, got[InvalidWindow], 1, "zero-length window has no effective instant")
}

func TestValidateNumberCoercion(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    float64
		wantErr bool
	}{
		{"float", 1250.5, 1250.5, false},
		{"int", 1250, 1250, false},
		{"numeric string", " 1250.50 ", 1250.5, false},
		{"currency string", "$1,250.50", 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Validate(contract.Default(), candidate(map[string]any{
				"unit_price": tt.raw,
			}))
			if tt.wantErr {
				got := kinds(t, err)
				assert.Equal(t, []string{"unit_price"}, got[TypeMismatch])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Fields["unit_price"])
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-15", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-03-15T08:30:00Z", time.Date(2024, time.March, 15, 8, 30, 0, 0, time.UTC)},
		{"2024-03-15T08:30:00+02:00", time.Date(2024, time.March, 15, 6, 30, 0, 0, time.UTC)},
		{"2024-03-15T08:30:00", time.Date(2024, time.March, 15, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseDate("15.03.2024")
	assert.Error(t, err)
}
