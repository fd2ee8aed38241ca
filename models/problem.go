package models

import "fmt"

// Problem is a judge problem, identified by contest id and index.
type Problem struct {
	ContestID int    `json:"contest_id"`
	Index     string `json:"index"`
	Name      string `json:"name"`
	Rating    *int   `json:"rating,omitempty"`
}

func ProblemKey(contestID int, index string) string {
	return fmt.Sprintf("%d-%s", contestID, index)
}

func (p Problem) Key() string {
	return ProblemKey(p.ContestID, p.Index)
}
