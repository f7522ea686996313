package util

import (
	"regexp"
	"strings"
)

// remoteSentinels make a job match any preferred country.
var remoteSentinels = []string{"remote", "remote position", "worldwide", "anywhere"}

type countryEntry struct {
	variants []string
	cities   []string
}

// countryTable maps a canonical country to the spellings and major cities
// boards actually print in location strings. Matching is word-bounded, so
// "us" never fires inside "australia".
var countryTable = map[string]countryEntry{
	"united states": {
		variants: []string{"usa", "us", "u.s.", "u.s.a", "united states", "united states of america", "america"},
		cities:   []string{"new york", "san francisco", "seattle", "austin", "boston", "chicago", "los angeles", "denver", "atlanta", "miami", "washington", "portland", "san jose", "dallas"},
	},
	"united kingdom": {
		variants: []string{"uk", "u.k.", "united kingdom", "great britain", "britain", "england", "scotland", "wales"},
		cities:   []string{"london", "manchester", "edinburgh", "cambridge", "bristol", "glasgow", "leeds"},
	},
	"canada": {
		variants: []string{"canada"},
		cities:   []string{"toronto", "vancouver", "montreal", "ottawa", "calgary", "waterloo"},
	},
	"germany": {
		variants: []string{"germany", "deutschland"},
		cities:   []string{"berlin", "munich", "hamburg", "cologne", "frankfurt", "stuttgart", "dusseldorf"},
	},
	"france": {
		variants: []string{"france"},
		cities:   []string{"paris", "lyon", "toulouse", "bordeaux", "nantes"},
	},
	"netherlands": {
		variants: []string{"netherlands", "the netherlands", "holland"},
		cities:   []string{"amsterdam", "rotterdam", "utrecht", "eindhoven", "the hague"},
	},
	"spain": {
		variants: []string{"spain"},
		cities:   []string{"madrid", "barcelona", "valencia", "seville", "malaga"},
	},
	"portugal": {
		variants: []string{"portugal"},
		cities:   []string{"lisbon", "porto", "braga"},
	},
	"poland": {
		variants: []string{"poland"},
		cities:   []string{"warsaw", "krakow", "wroclaw", "gdansk", "poznan"},
	},
	"romania": {
		variants: []string{"romania"},
		cities:   []string{"bucharest", "cluj-napoca", "cluj", "timisoara", "iasi", "brasov"},
	},
	"ireland": {
		variants: []string{"ireland"},
		cities:   []string{"dublin", "cork", "galway"},
	},
	"israel": {
		variants: []string{"israel"},
		cities:   []string{"tel aviv", "jerusalem", "haifa"},
	},
	"india": {
		variants: []string{"india"},
		cities:   []string{"bangalore", "bengaluru", "mumbai", "hyderabad", "pune", "chennai", "delhi", "gurgaon", "gurugram", "noida"},
	},
	"australia": {
		variants: []string{"australia"},
		cities:   []string{"sydney", "melbourne", "brisbane", "perth"},
	},
	"new zealand": {
		variants: []string{"new zealand"},
		cities:   []string{"auckland", "wellington"},
	},
	"brazil": {
		variants: []string{"brazil", "brasil"},
		cities:   []string{"sao paulo", "rio de janeiro", "belo horizonte"},
	},
	"mexico": {
		variants: []string{"mexico"},
		cities:   []string{"mexico city", "guadalajara", "monterrey"},
	},
	"argentina": {
		variants: []string{"argentina"},
		cities:   []string{"buenos aires", "cordoba"},
	},
	"singapore": {
		variants: []string{"singapore"},
	},
	"japan": {
		variants: []string{"japan"},
		cities:   []string{"tokyo", "osaka", "kyoto"},
	},
	"switzerland": {
		variants: []string{"switzerland"},
		cities:   []string{"zurich", "geneva", "basel", "lausanne"},
	},
	"austria": {
		variants: []string{"austria"},
		cities:   []string{"vienna", "graz", "linz"},
	},
	"sweden": {
		variants: []string{"sweden"},
		cities:   []string{"stockholm", "gothenburg", "malmo"},
	},
	"denmark": {
		variants: []string{"denmark"},
		cities:   []string{"copenhagen", "aarhus"},
	},
	"norway": {
		variants: []string{"norway"},
		cities:   []string{"oslo", "bergen"},
	},
	"finland": {
		variants: []string{"finland"},
		cities:   []string{"helsinki", "tampere"},
	},
	"estonia": {
		variants: []string{"estonia"},
		cities:   []string{"tallinn", "tartu"},
	},
	"latvia": {
		variants: []string{"latvia"},
		cities:   []string{"riga"},
	},
	"lithuania": {
		variants: []string{"lithuania"},
		cities:   []string{"vilnius", "kaunas"},
	},
	"czech republic": {
		variants: []string{"czech republic", "czechia"},
		cities:   []string{"prague", "brno"},
	},
	"hungary": {
		variants: []string{"hungary"},
		cities:   []string{"budapest"},
	},
	"bulgaria": {
		variants: []string{"bulgaria"},
		cities:   []string{"sofia", "plovdiv"},
	},
	"greece": {
		variants: []string{"greece"},
		cities:   []string{"athens", "thessaloniki"},
	},
	"italy": {
		variants: []string{"italy", "italia"},
		cities:   []string{"milan", "rome", "turin", "bologna"},
	},
	"ukraine": {
		variants: []string{"ukraine"},
		cities:   []string{"kyiv", "kiev", "lviv", "kharkiv"},
	},
	"serbia": {
		variants: []string{"serbia"},
		cities:   []string{"belgrade", "novi sad"},
	},
	"croatia": {
		variants: []string{"croatia"},
		cities:   []string{"zagreb", "split"},
	},
	"united arab emirates": {
		variants: []string{"united arab emirates", "uae"},
		cities:   []string{"dubai", "abu dhabi"},
	},
}

var nonWordRe = regexp.MustCompile(`[^a-z0-9]+`)

// padWords lowers s, flattens punctuation to spaces and pads the ends so a
// phrase can be matched with a plain Contains on " phrase ".
func padWords(s string) string {
	s = nonWordRe.ReplaceAllString(strings.ToLower(s), " ")
	return " " + strings.TrimSpace(s) + " "
}

func containsPhrase(padded, phrase string) bool {
	phrase = strings.TrimSpace(nonWordRe.ReplaceAllString(strings.ToLower(phrase), " "))
	if phrase == "" {
		return false
	}
	return strings.Contains(padded, " "+phrase+" ")
}

func lookupCountry(name string) (countryEntry, bool) {
	key := strings.ToLower(CleanText(name))
	if e, ok := countryTable[key]; ok {
		return e, true
	}
	for _, e := range countryTable {
		for _, v := range e.variants {
			if v == key {
				return e, true
			}
		}
	}
	return countryEntry{}, false
}

// LocationMatchesCountry reports whether a job location satisfies the
// preferred-country filter. Remote-ish locations satisfy every country.
func LocationMatchesCountry(location, country string) bool {
	country = strings.TrimSpace(country)
	if country == "" {
		return true
	}
	padded := padWords(location)
	for _, s := range remoteSentinels {
		if containsPhrase(padded, s) {
			return true
		}
	}
	entry, ok := lookupCountry(country)
	if !ok {
		return containsPhrase(padded, country)
	}
	for _, v := range entry.variants {
		if containsPhrase(padded, v) {
			return true
		}
	}
	for _, c := range entry.cities {
		if containsPhrase(padded, c) {
			return true
		}
	}
	return false
}

// LocationMatchesCity is a plain case-insensitive substring check.
func LocationMatchesCity(location, city string) bool {
	city = strings.TrimSpace(city)
	if city == "" {
		return true
	}
	return strings.Contains(strings.ToLower(location), strings.ToLower(city))
}
