package transaction

// Receipt is the metadata scraped from a paid bill confirmation page.
type Receipt struct {
	Operation   string `json:"operation"`
	Transaction string `json:"transaction"`
	Auth        string `json:"auth"`
	Invoice     string `json:"invoice"`
	Amount      string `json:"amount"`
	EBB         string `json:"ebb"`
	Date        string `json:"date"`
	File        string `json:"file"`
}
