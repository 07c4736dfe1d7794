package model

import "time"

// Profile is a generated profile artifact held in the registry.
//
// Content is the text the LLM returned for the profile extraction prompt,
// normally a JSON document, kept verbatim. CV is filled in once a CV has been
// generated from the profile.
type Profile struct {
	ID            string     `json:"profile_id"`
	Content       string     `json:"profile"`
	CV            string     `json:"cv,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CVGeneratedAt *time.Time `json:"cv_generated_at,omitempty"`
}

// MediaFile describes an object uploaded on behalf of a profile.
type MediaFile struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
}
