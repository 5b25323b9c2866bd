package models

type LinkKind string

const (
	LinkStartToStart LinkKind = "start_to_start"
	LinkEndToStart   LinkKind = "end_to_start"
	LinkEndToEnd     LinkKind = "end_to_end"
	LinkStartToEnd   LinkKind = "start_to_end"
)

type Link struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Kind   LinkKind  `json:"kind"`
	Remote RemoteRef `json:"remote"`
}
