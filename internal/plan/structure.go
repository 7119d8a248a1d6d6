package plan

import (
	"errors"
	"fmt"
)

// SaleStructure is the payment arrangement of a sale.
type SaleStructure int

const (
	FullPayment SaleStructure = iota + 1
	InstallmentWithDown
	PureInstallment
)

var ErrUnknownStructure = errors.New("unknown sale structure")

var structureNames = map[SaleStructure]string{
	FullPayment:         "full_payment",
	InstallmentWithDown: "installment_with_down",
	PureInstallment:     "pure_installment",
}

func (s SaleStructure) String() string {
	if name, ok := structureNames[s]; ok {
		return name
	}
	return fmt.Sprintf("structure(%d)", int(s))
}

// ParseSaleStructure maps a wire tag to a SaleStructure.
func ParseSaleStructure(tag string) (SaleStructure, error) {
	for s, name := range structureNames {
		if name == tag {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStructure, tag)
}

// Valid reports whether s is one of the declared structures.
func (s SaleStructure) Valid() bool {
	_, ok := structureNames[s]
	return ok
}

// IsInstallment reports whether the structure carries a schedule.
func (s SaleStructure) IsInstallment() bool {
	return s == InstallmentWithDown || s == PureInstallment
}

// AcceptsDownPayment reports whether a down payment is meaningful for s.
func (s SaleStructure) AcceptsDownPayment() bool {
	return s == InstallmentWithDown
}

func (s SaleStructure) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStructure, int(s))
	}
	return []byte(s.String()), nil
}

func (s *SaleStructure) UnmarshalText(text []byte) error {
	parsed, err := ParseSaleStructure(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
