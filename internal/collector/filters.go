// Package collector fetches award records from the federal spending search
// API. It builds the collection task plan, walks paginated searches under a
// rate limiter, cleans the rows, and hands them to the store.
package collector

import "cleanspend/internal/taxonomy"

const dateLayout = "2006-01-02"

// TimePeriod bounds a search to a closed date range, dates as YYYY-MM-DD.
type TimePeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Location narrows a search by place of performance.
type Location struct {
	Country string `json:"country"`
	State   string `json:"state,omitempty"`
}

// Filters is the search API's filter object. Empty slices stay off the wire.
// The API rejects award-type codes from more than one group in a single
// request, so callers pick exactly one group per search.
type Filters struct {
	TimePeriod     []TimePeriod `json:"time_period,omitempty"`
	Keywords       []string     `json:"keywords,omitempty"`
	AwardTypeCodes []string     `json:"award_type_codes,omitempty"`
	CFDANumbers    []string     `json:"cfda_numbers,omitempty"`
	Locations      []Location   `json:"place_of_performance_locations,omitempty"`
}

// periodRange converts a named policy period to the wire format.
func periodRange(p taxonomy.Period) []TimePeriod {
	return []TimePeriod{{
		StartDate: p.Start.Format(dateLayout),
		EndDate:   p.End.Format(dateLayout),
	}}
}

// StatesFilter restricts a search to the given state codes, US only.
func StatesFilter(codes ...string) []Location {
	locs := make([]Location, 0, len(codes))
	for _, code := range codes {
		locs = append(locs, Location{Country: "USA", State: code})
	}
	return locs
}

// AwardTypeGroups maps group names to the award-type codes the search API
// accepts for them.
var AwardTypeGroups = map[string][]string{
	"contracts":                  {"A", "B", "C", "D"},
	"grants":                     {"02", "03", "04", "05"},
	"loans":                      {"07", "08"},
	"other_financial_assistance": {"06", "10"},
	"direct_payments":            {"09", "11", "-1"},
	"idvs":                       {"IDV_A", "IDV_B", "IDV_B_A", "IDV_B_B", "IDV_B_C", "IDV_C", "IDV_D", "IDV_E"},
}

// awardGroupOrder fixes plan ordering; map iteration would shuffle task IDs
// between runs and defeat the progress file.
var awardGroupOrder = []string{
	"contracts",
	"grants",
	"loans",
	"other_financial_assistance",
	"direct_payments",
	"idvs",
}

// CleanEnergyKeywords is the full search vocabulary for period collection
// tasks, spanning generation, storage, grid, transport, efficiency and
// climate terms.
var CleanEnergyKeywords = []string{
	"solar",
	"photovoltaic",
	"wind",
	"geothermal",
	"hydroelectric",
	"hydro power",
	"biomass",
	"biofuel",
	"biodiesel",
	"ethanol",
	"renewable energy",
	"battery",
	"energy storage",
	"grid storage",
	"lithium",
	"energy density",
	"smart grid",
	"grid modernization",
	"transmission",
	"microgrid",
	"grid integration",
	"power grid",
	"electrical grid",
	"grid reliability",
	"electric vehicle",
	"EV charging",
	"charging station",
	"charging infrastructure",
	"electric transportation",
	"zero emission vehicle",
	"energy efficiency",
	"weatherization",
	"building efficiency",
	"HVAC efficiency",
	"LED lighting",
	"insulation",
	"energy conservation",
	"carbon capture",
	"carbon sequestration",
	"clean hydrogen",
	"fuel cell",
	"offshore wind",
	"concentrated solar",
	"tidal energy",
	"wave energy",
	"clean energy",
	"climate change",
	"greenhouse gas",
	"carbon reduction",
	"decarbonization",
	"net zero",
	"carbon neutral",
}

// PriorityKeywords get individual collection tasks over the current policy
// period, on top of the bulk period searches.
var PriorityKeywords = []string{
	"solar",
	"wind",
	"battery",
	"electric vehicle",
	"renewable energy",
	"clean energy",
	"energy storage",
	"smart grid",
	"carbon capture",
	"clean hydrogen",
	"geothermal",
	"biomass",
}

// EnergyCFDACodes lists the assistance-listing (CFDA) programs collected
// individually. All 81.x codes are Department of Energy programs.
var EnergyCFDACodes = []string{
	"81.041", // State Energy Program
	"81.042", // Weatherization Assistance for Low-Income Persons
	"81.119", // State Energy Program Special Projects
	"81.087", // Renewable Energy Research and Development
	"81.086", // Conservation Research and Development
	"81.089", // Fossil Energy Research and Development
	"81.121", // Nuclear Energy Research, Development and Demonstration
	"81.114", // University Reactor Infrastructure and Education Support
	"81.112", // Stewardship Science Grant Program
	"81.113", // Defense Nuclear Nonproliferation Research
	"81.122", // Electricity Delivery and Energy Reliability Research
	"81.117", // Energy Efficiency and Renewable Energy Information Dissemination
	"81.064", // Office of Scientific and Technical Information
	"81.135", // Advanced Research Projects Agency - Energy
	"81.126", // Federal Loan Guarantees for Innovative Energy Technologies
	"81.079", // Regional Biomass Energy Programs
	"81.049", // Office of Science Financial Assistance Program
	"81.057", // University Coal Research
	"81.105", // NICE3 industrial energy program
	"81.108", // Epidemiology and Other Health Studies
	"81.123", // NNSA Minority Serving Institutions Program
	"81.124", // Predictive Science Academic Alliance Program
	"81.104", // Office of Environmental Waste Processing
	"81.065", // Nuclear Waste Disposal Siting
	"81.106", // Transport of Transuranic Wastes to WIPP
}

// EnergyPSCCodes are the product/service codes for energy-related contract
// searches.
var EnergyPSCCodes = []string{
	"Y1", // Maintenance of Real Property
	"Z1", // Maintenance of Equipment
	"R4", // Utilities and Housekeeping Services
}

// DefaultAwardFields is the field list requested from the award search.
// Result records are keyed by these names.
var DefaultAwardFields = []string{
	"Award ID",
	"Recipient Name",
	"Start Date",
	"End Date",
	"Award Amount",
	"Awarding Agency",
	"Awarding Sub Agency",
	"Award Type",
	"Funding Agency",
	"Funding Sub Agency",
	"Place of Performance State Code",
	"Place of Performance State",
	"Recipient Location State Code",
	"Description",
}
