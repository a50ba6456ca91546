package db

import (
	"hermannm.dev/enumnames"
)

// An aggregate operation requested for a field. The zero value means that no function was
// specified, in which case DefaultStatisticFunc is used.
type StatisticFunc uint8

const (
	StatisticCount StatisticFunc = iota + 1
	StatisticEmpty
	StatisticFilled
	StatisticUnique
	StatisticMax
	StatisticMin
	StatisticSum
	StatisticAverage
	StatisticChecked
	StatisticUnChecked
	StatisticPercentEmpty
	StatisticPercentFilled
	StatisticPercentUnique
	StatisticPercentChecked
	StatisticPercentUnChecked
	StatisticEarliestDate
	StatisticLatestDate
	StatisticDateRangeOfDays
	StatisticDateRangeOfMonths
	StatisticTotalAttachmentSize
)

const DefaultStatisticFunc = StatisticCount

var statisticFuncNames = enumnames.NewMap(map[StatisticFunc]string{
	StatisticCount:               "count",
	StatisticEmpty:               "empty",
	StatisticFilled:              "filled",
	StatisticUnique:              "unique",
	StatisticMax:                 "max",
	StatisticMin:                 "min",
	StatisticSum:                 "sum",
	StatisticAverage:             "average",
	StatisticChecked:             "checked",
	StatisticUnChecked:           "unChecked",
	StatisticPercentEmpty:        "percentEmpty",
	StatisticPercentFilled:       "percentFilled",
	StatisticPercentUnique:       "percentUnique",
	StatisticPercentChecked:      "percentChecked",
	StatisticPercentUnChecked:    "percentUnChecked",
	StatisticEarliestDate:        "earliestDate",
	StatisticLatestDate:          "latestDate",
	StatisticDateRangeOfDays:     "dateRangeOfDays",
	StatisticDateRangeOfMonths:   "dateRangeOfMonths",
	StatisticTotalAttachmentSize: "totalAttachmentSize",
})

func (statisticFunc StatisticFunc) IsValid() bool {
	_, ok := statisticFuncNames.GetName(statisticFunc)
	return ok
}

// Returns true if the function was set in the request, i.e. it is not the zero value.
func (statisticFunc StatisticFunc) IsSpecified() bool {
	return statisticFunc != 0
}

// Returns the function itself if specified, or DefaultStatisticFunc otherwise.
func (statisticFunc StatisticFunc) OrDefault() StatisticFunc {
	if statisticFunc.IsSpecified() {
		return statisticFunc
	}
	return DefaultStatisticFunc
}

func (statisticFunc StatisticFunc) String() string {
	return statisticFuncNames.GetNameOrFallback(statisticFunc, "INVALID_STATISTIC_FUNC")
}

func (statisticFunc StatisticFunc) MarshalJSON() ([]byte, error) {
	return statisticFuncNames.MarshalToNameJSON(statisticFunc)
}

func (statisticFunc *StatisticFunc) UnmarshalJSON(bytes []byte) error {
	return statisticFuncNames.UnmarshalFromNameJSON(bytes, statisticFunc)
}

var (
	attachmentStatisticFuncs = []StatisticFunc{
		StatisticCount,
		StatisticEmpty,
		StatisticFilled,
		StatisticPercentEmpty,
		StatisticPercentFilled,
		StatisticTotalAttachmentSize,
	}

	stringStatisticFuncs = []StatisticFunc{
		StatisticCount,
		StatisticEmpty,
		StatisticFilled,
		StatisticUnique,
		StatisticPercentEmpty,
		StatisticPercentFilled,
		StatisticPercentUnique,
	}

	numberStatisticFuncs = []StatisticFunc{
		StatisticCount,
		StatisticEmpty,
		StatisticFilled,
		StatisticUnique,
		StatisticMax,
		StatisticMin,
		StatisticSum,
		StatisticAverage,
		StatisticPercentEmpty,
		StatisticPercentFilled,
		StatisticPercentUnique,
	}

	dateTimeStatisticFuncs = []StatisticFunc{
		StatisticCount,
		StatisticEmpty,
		StatisticFilled,
		StatisticUnique,
		StatisticPercentEmpty,
		StatisticPercentFilled,
		StatisticPercentUnique,
		StatisticEarliestDate,
		StatisticLatestDate,
		StatisticDateRangeOfDays,
		StatisticDateRangeOfMonths,
	}

	booleanStatisticFuncs = []StatisticFunc{
		StatisticCount,
		StatisticEmpty,
		StatisticFilled,
		StatisticChecked,
		StatisticUnChecked,
		StatisticPercentEmpty,
		StatisticPercentFilled,
		StatisticPercentChecked,
		StatisticPercentUnChecked,
	}
)

// Returns the statistic functions that may be requested for the given field. The result is a
// fresh slice that the caller may modify.
func ValidStatisticFuncs(field Field) []StatisticFunc {
	var valid []StatisticFunc

	if field.Type == FieldTypeAttachment {
		valid = attachmentStatisticFuncs
	} else {
		switch field.CellValueType {
		case CellValueTypeString:
			valid = stringStatisticFuncs
		case CellValueTypeNumber:
			valid = numberStatisticFuncs
		case CellValueTypeDateTime:
			valid = dateTimeStatisticFuncs
		case CellValueTypeBoolean:
			valid = booleanStatisticFuncs
		}
	}

	return append([]StatisticFunc(nil), valid...)
}
