package domain

// SchemeLevel distinguishes central from state government schemes.
type SchemeLevel string

const (
	SchemeCentral SchemeLevel = "central"
	SchemeState   SchemeLevel = "state"
)

// SchemeLink points at a scheme's official page.
type SchemeLink struct {
	URL  string `json:"url" yaml:"url"`
	Text string `json:"text" yaml:"text"`
}

// Scheme is a government support program.
type Scheme struct {
	Name         string      `json:"name" yaml:"name"`
	Benefit      string      `json:"benefit" yaml:"benefit"`
	Eligibility  string      `json:"eligibility" yaml:"eligibility"`
	ApplyProcess []string    `json:"applyProcess" yaml:"apply_process"`
	Link         *SchemeLink `json:"link,omitempty" yaml:"link,omitempty"`
	Level        SchemeLevel `json:"level" yaml:"-"`
}

// MarketPrice is one mock market quote, in rupees per quintal.
type MarketPrice struct {
	Crop    string  `json:"crop" yaml:"crop"`
	Variety string  `json:"variety" yaml:"variety"`
	Market  string  `json:"market" yaml:"market"`
	Price   int     `json:"price" yaml:"price"`
	Change  float64 `json:"change" yaml:"change"`
}

// CurrentWeather is the present conditions of a weather report.
type CurrentWeather struct {
	Temp      int    `json:"temp" yaml:"temp"`
	Condition string `json:"condition" yaml:"condition"`
	WindSpeed int    `json:"wind_speed" yaml:"wind_speed"`
	Humidity  int    `json:"humidity" yaml:"humidity"`
}

// DailyForecast is one day of a weather report.
type DailyForecast struct {
	Day       string `json:"day" yaml:"day"`
	TempMax   int    `json:"temp_max" yaml:"temp_max"`
	TempMin   int    `json:"temp_min" yaml:"temp_min"`
	Condition string `json:"condition" yaml:"condition"`
}

// Weather is a weather report for one location.
type Weather struct {
	Location string          `json:"location" yaml:"-"`
	Current  CurrentWeather  `json:"current" yaml:"current"`
	Forecast []DailyForecast `json:"forecast" yaml:"forecast"`
}

// FinancialNeed is one of the key financial needs a farmer may have.
type FinancialNeed struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// FinancialProduct maps a need to a product and a supporting scheme.
type FinancialProduct struct {
	Need    string `json:"need" yaml:"need"`
	Product string `json:"product" yaml:"product"`
	Scheme  string `json:"scheme" yaml:"scheme"`
}
