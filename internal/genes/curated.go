package genes

// m6A regulators: writers install the mark, erasers remove it, readers bind it.
var curated = []Record{
	{"METTL3", Writing},
	{"METTL14", Writing},
	{"METTL16", Writing},
	{"WTAP", Writing},
	{"VIRMA", Writing},
	{"RBM15", Writing},
	{"RBM15B", Writing},
	{"ZC3H13", Writing},
	{"CBLL1", Writing},
	{"ZCCHC4", Writing},
	{"METTL5", Writing},

	{"FTO", Erasing},
	{"ALKBH5", Erasing},
	{"ALKBH3", Erasing},

	{"YTHDF1", Reading},
	{"YTHDF2", Reading},
	{"YTHDF3", Reading},
	{"YTHDC1", Reading},
	{"YTHDC2", Reading},
	{"IGF2BP1", Reading},
	{"IGF2BP2", Reading},
	{"IGF2BP3", Reading},
	{"HNRNPA2B1", Reading},
	{"HNRNPC", Reading},
	{"RBMX", Reading},
	{"EIF3A", Reading},
	{"ELAVL1", Reading},
	{"FMR1", Reading},
}

// Legacy symbols still found in older releases of the omics tables.
var curatedAliases = map[string]string{
	"KIAA1429": "VIRMA",
	"HAKAI":    "CBLL1",
	"HNRNPG":   "RBMX",
}

// Curated returns the built-in m6A regulator set.
func Curated() *Set {
	s, err := NewSet(curated, curatedAliases)
	if err != nil {
		panic(err)
	}
	return s
}
