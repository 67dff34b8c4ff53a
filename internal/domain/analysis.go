package domain

type Analysis struct {
	Topics     []string `json:"topics"`
	Industries []string `json:"industries"`
}

type Company struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}
