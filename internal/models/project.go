package models

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

type Milestone struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	State string `json:"state"`
}
