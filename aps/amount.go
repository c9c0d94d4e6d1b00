package aps

import (
	"math"
	"strconv"
)

// currencyDecimals lists the currencies whose minor unit is not 2 decimal
// places. Anything absent defaults to 2.
var currencyDecimals = map[string]int{
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"BHD": 3,
	"LYD": 3,
	"IQD": 3,
	"CLF": 4,
	"BIF": 0,
	"DJF": 0,
	"GNF": 0,
	"ISK": 0,
	"JPY": 0,
	"KMF": 0,
	"KRW": 0,
	"CLP": 0,
	"PYG": 0,
	"RWF": 0,
	"UGX": 0,
	"VND": 0,
	"VUV": 0,
	"XAF": 0,
	"BYR": 0,
}

// DecimalPlaces returns the number of minor-unit decimal places for a
// currency code.
func DecimalPlaces(currency string) int {
	if places, ok := currencyDecimals[currency]; ok {
		return places
	}
	return 2
}

// ToMinorUnits converts a decimal amount into the processor's minor-unit
// representation. When chargeFront is set the amount is first converted with
// the shopper-currency rate. The scaled value is re-rounded to 2 decimals for
// transport, matching the processor's defensive expectation.
func ToMinorUnits(amount, fxRate float64, currency string, chargeFront bool) string {
	places := DecimalPlaces(currency)
	value := amount
	if chargeFront {
		value = amount * fxRate
	}
	value = roundTo(value, places)
	if places != 0 {
		value = value * math.Pow10(places)
	}
	return formatAmount(roundTo(value, 2))
}

// FromMinorUnits converts a minor-unit amount back to a decimal value,
// rounded to 2 decimal places.
func FromMinorUnits(amount float64, currency string) float64 {
	places := DecimalPlaces(currency)
	if places != 0 {
		amount = amount / math.Pow10(places)
	}
	return roundTo(amount, 2)
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow10(places)
	return math.Round(value*factor) / factor
}

// formatAmount renders the amount the way the processor signs it: no trailing
// zeros, no exponent.
func formatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
