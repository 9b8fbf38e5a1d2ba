package dateparse

// MonthLexicon maps a lower-case month name to its number.
type MonthLexicon map[string]int

// RussianMonths covers the genitive ("мая") and nominative ("май") forms.
func RussianMonths() MonthLexicon {
	return MonthLexicon{
		"января": 1, "февраля": 2, "марта": 3, "апреля": 4,
		"мая": 5, "июня": 6, "июля": 7, "августа": 8,
		"сентября": 9, "октября": 10, "ноября": 11, "декабря": 12,

		"январь": 1, "февраль": 2, "март": 3, "апрель": 4,
		"май": 5, "июнь": 6, "июль": 7, "август": 8,
		"сентябрь": 9, "октябрь": 10, "ноябрь": 11, "декабрь": 12,
	}
}
