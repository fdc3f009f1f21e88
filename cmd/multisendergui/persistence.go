package main

import (
	"encoding/json"
	"os"
)

const sessionFile = "multisender_session.json"

// draft is the page content restored on the next start.
type draft struct {
	Token     string `json:"token"`
	Text      string `json:"text"`
	ChunkSize string `json:"chunkSize"`
	Theme     string `json:"theme"`
}

func saveDraft(d draft) error {
	f, err := os.Create(sessionFile)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(d)
}

func loadDraft() draft {
	var d draft
	f, err := os.Open(sessionFile)
	if err != nil {
		return d
	}
	defer f.Close()
	_ = json.NewDecoder(f).Decode(&d)
	return d
}
