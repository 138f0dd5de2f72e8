package timezone

// City pairs a UTC offset with the numeric TimeZoneCity code exiftool
// writes for Canon bodies. Not an exhaustive list; see
// https://sno.phy.queensu.ca/~phil/exiftool/TagNames/Canon.html
type City struct {
	Name          string
	ID            int
	OffsetMinutes int
}

var defaultCities = []City{
	{"Adelaide", 5, 9*60 + 30},
	{"Anchorage", 31, -9 * 60},
	{"Austin", 28, -6 * 60},
	{"Azores", 21, -1 * 60},
	{"Bangkok", 8, 7 * 60},
	{"Buenos Aires", 25, -4 * 60},
	{"Cairo", 18, 2 * 60},
	{"Caracas", 26, -(4*60 + 30)},
	{"Chatham Islands", 1, 12*60 + 45},
	{"Chicago", 28, -6 * 60},
	{"Delhi", 12, 5*60 + 30},
	{"Denver", 29, -7 * 60},
	{"Dhaka", 10, 6 * 60},
	{"Dubai", 15, 4 * 60},
	{"Dublin", 20, 0},
	{"Fernando de Noronha", 22, -2 * 60},
	{"Galapagos", 28, -6 * 60},
	{"Hong Kong", 7, 8 * 60},
	{"Honolulu", 32, -10 * 60},
	{"Kabul", 14, 4*60 + 30},
	{"Karachi", 13, 5 * 60},
	{"Kathmandu", 11, 5*60 + 45},
	{"Kiev", 17, 2 * 60},
	{"London", 20, 0},
	{"Los Angeles", 30, -8 * 60},
	{"Mexico City", 28, -6 * 60},
	{"Moscow", 17, 4 * 60},
	{"New York", 27, -5 * 60},
	{"Newfoundland", 24, -(3*60 + 30)},
	{"Paris", 19, 1 * 60},
	{"Quintana Roo", 27, -5 * 60},
	{"Quito", 27, -5 * 60},
	{"Rome", 19, 1 * 60},
	{"Samoa", 33, 13 * 60},
	{"San Francisco", 30, -8 * 60},
	{"Santiago", 25, -4 * 60},
	{"Sao Paulo", 23, -3 * 60},
	{"Singapore", 7, 8 * 60},
	{"Solomon Islands", 3, 11 * 60},
	{"Sydney", 4, 10 * 60},
	{"Tehran", 16, 3*60 + 30},
	{"Tokyo", 6, 9 * 60},
	{"US/Central", 28, -6 * 60},
	{"US/Eastern", 27, -5 * 60},
	{"US/Pacific", 30, -8 * 60},
	{"Wellington", 2, 12 * 60},
	{"Yangon", 9, 6*60 + 30},
}

// DefaultCities returns a copy of the built-in city table.
func DefaultCities() []City {
	cities := make([]City, len(defaultCities))
	copy(cities, defaultCities)
	return cities
}
