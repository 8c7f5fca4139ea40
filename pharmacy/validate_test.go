package pharmacy_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clinic-rx/pharmacy"
)

// =============================================================================
// FIELD NAMES
// =============================================================================

func TestValidateNewPrescription_ReportsJSONFieldNames(t *testing.T) {
	// GIVEN: Inputs that each break one rule
	// WHEN: Validating them
	// THEN: The error names the field the way a client sends it

	ok := pharmacy.NewPrescription{PatientID: "BN-1", Prescriber: "dr.minh"}
	line := pharmacy.NewItem{DisplayName: "Saline", Quantity: 1}

	tests := []struct {
		name   string
		header pharmacy.NewPrescription
		items  []pharmacy.NewItem
		field  string
	}{
		{"missing patient", pharmacy.NewPrescription{Prescriber: "dr.minh"}, []pharmacy.NewItem{line}, "patient_id"},
		{"missing prescriber", pharmacy.NewPrescription{PatientID: "BN-1"}, []pharmacy.NewItem{line}, "prescriber"},
		{"unknown status", pharmacy.NewPrescription{PatientID: "BN-1", Prescriber: "dr.minh", Status: "lost"}, []pharmacy.NewItem{line}, "status"},
		{"no name or code", ok, []pharmacy.NewItem{{Quantity: 1}}, "items[0].display_name"},
		{"blank code", ok, []pharmacy.NewItem{line, {DrugCode: "   ", Quantity: 1}}, "items[1].display_name"},
		{"zero quantity", ok, []pharmacy.NewItem{{DrugCode: "PARA500"}}, "items[0].quantity"},
		{"negative days", ok, []pharmacy.NewItem{{DrugCode: "PARA500", Quantity: 1, Days: -1}}, "items[0].days"},
		{"negative price", ok, []pharmacy.NewItem{{DisplayName: "x", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}, "items[0].unit_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pharmacy.ValidateNewPrescription(tt.header, tt.items)
			var ve *pharmacy.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, pharmacy.ErrValidation)
		})
	}
}

func TestValidateNewPrescription_CodeOnlyLineAccepted(t *testing.T) {
	err := pharmacy.ValidateNewPrescription(
		pharmacy.NewPrescription{PatientID: "BN-1", Prescriber: "dr.minh"},
		[]pharmacy.NewItem{{DrugCode: " PARA500 ", Quantity: 2}},
	)
	assert.NoError(t, err)
}
