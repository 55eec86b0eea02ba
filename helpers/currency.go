package helpers

import "fmt"

// FormatRupee formats an amount as Indian Rupees with lakh/crore digit
// grouping (₹12,34,567). Fractions are dropped; signals and event details
// only need whole-rupee amounts.
func FormatRupee(amount float64) string {
	value := int64(amount)

	negative := value < 0
	if negative {
		value = -value
	}

	str := fmt.Sprintf("%d", value)
	length := len(str)

	// Indian grouping: rightmost group of 3, then groups of 2.
	var result string
	if length <= 3 {
		result = str
	} else {
		result = str[length-3:]
		rest := str[:length-3]
		for len(rest) > 2 {
			result = rest[len(rest)-2:] + "," + result
			rest = rest[:len(rest)-2]
		}
		result = rest + "," + result
	}

	if negative {
		return fmt.Sprintf("-₹%s", result)
	}
	return fmt.Sprintf("₹%s", result)
}
