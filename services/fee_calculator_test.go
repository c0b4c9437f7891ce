package services

import (
	"testing"

	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeTotalFee(t *testing.T) {
	none := decimal.NullDecimal{}

	tests := []struct {
		name      string
		kind      model.ProgramType
		base      string
		online    decimal.NullDecimal
		onsite    decimal.NullDecimal
		wantTotal string
	}{
		{"online defaults to base", model.ProgramTypeOnline, "80000", none, none, "80000"},
		{"online uses online fee", model.ProgramTypeOnline, "80000", nullDec("65000"), nullDec("99000"), "65000"},
		{"onsite adds premium", model.ProgramTypeOnsite, "100000", none, none, "120000"},
		{"onsite premium rounds to cents", model.ProgramTypeOnsite, "999.99", none, none, "1199.99"},
		{"onsite uses explicit fee", model.ProgramTypeOnsite, "100000", none, nullDec("110000"), "110000"},
		{"explicit zero onsite fee is honoured", model.ProgramTypeOnsite, "100000", none, nullDec("0"), "0"},
		{"school is base fee", model.ProgramTypeSchool, "45000", nullDec("1"), nullDec("2"), "45000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotalFee(tt.kind, dec(tt.base), tt.online, tt.onsite)
			assert.True(t, got.Equal(dec(tt.wantTotal)), "got %s want %s", got, tt.wantTotal)
		})
	}
}

func TestApplyTotalFeeOverwritesStaleTotal(t *testing.T) {
	p := &model.Program{ProgramType: model.ProgramTypeOnsite, BaseFee: dec("1000"), TotalFee: dec("1")}
	applyTotalFee(p)
	assert.Equal(t, "1200.00", p.TotalFee.StringFixed(2))
}
