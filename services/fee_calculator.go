package services

import (
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/shopspring/decimal"
)

// OnsitePremium is applied to the base fee when an onsite program has no explicit onsite fee
var OnsitePremium = decimal.RequireFromString("1.20")

// ComputeTotalFee derives a program's total fee from its type and fee components.
// Inputs are assumed validated and non-negative.
func ComputeTotalFee(programType model.ProgramType, baseFee decimal.Decimal, onlineFee, onsiteFee decimal.NullDecimal) decimal.Decimal {
	switch programType {
	case model.ProgramTypeOnline:
		if onlineFee.Valid {
			return onlineFee.Decimal.Round(2)
		}
		return baseFee.Round(2)
	case model.ProgramTypeOnsite:
		if onsiteFee.Valid {
			return onsiteFee.Decimal.Round(2)
		}
		return baseFee.Mul(OnsitePremium).Round(2)
	default:
		return baseFee.Round(2)
	}
}

// applyTotalFee re-derives p.TotalFee in place
func applyTotalFee(p *model.Program) {
	p.TotalFee = ComputeTotalFee(p.ProgramType, p.BaseFee, p.OnlineFee, p.OnsiteFee)
}
