package enums

import "fmt"

// CheckoutStep is a position in the checkout sequence.
type CheckoutStep int

const (
	CheckoutStepContact CheckoutStep = iota
	CheckoutStepShipping
	CheckoutStepBilling
	CheckoutStepPayment
)

var checkoutStepNames = map[CheckoutStep]string{
	CheckoutStepContact:  "contact",
	CheckoutStepShipping: "shipping",
	CheckoutStepBilling:  "billing",
	CheckoutStepPayment:  "payment",
}

// CheckoutSteps returns all steps in order.
func CheckoutSteps() []CheckoutStep {
	return []CheckoutStep{CheckoutStepContact, CheckoutStepShipping, CheckoutStepBilling, CheckoutStepPayment}
}

// String implements fmt.Stringer.
func (s CheckoutStep) String() string {
	if name, ok := checkoutStepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// IsValid reports whether the value is known.
func (s CheckoutStep) IsValid() bool {
	_, ok := checkoutStepNames[s]
	return ok
}

// ParseCheckoutStep accepts a step index.
func ParseCheckoutStep(index int) (CheckoutStep, error) {
	step := CheckoutStep(index)
	if !step.IsValid() {
		return 0, fmt.Errorf("invalid checkout step %d", index)
	}
	return step, nil
}

// StepStatus is the per-step indicator shown in the progress bar.
type StepStatus string

const (
	StepStatusWait    StepStatus = "wait"
	StepStatusProcess StepStatus = "process"
	StepStatusFinish  StepStatus = "finish"
	StepStatusError   StepStatus = "error"
)

// String implements fmt.Stringer.
func (s StepStatus) String() string {
	return string(s)
}
