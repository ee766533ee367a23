package usersession

import "encoding/json"

// State is the loader's view state. It is replaced whole on every commit.
type State struct {
	User    *Principal
	Profile *Profile
	Loading bool
	Error   string
}

// IsAuthenticated reports whether a principal is loaded
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// Ready reports a completed cycle that loaded a principal
func (s State) Ready() bool {
	return !s.Loading && s.Error == "" && s.User != nil
}

// Errored reports a completed cycle that failed
func (s State) Errored() bool {
	return !s.Loading && s.Error != ""
}

type stateJSON struct {
	User            *Principal `json:"user"`
	Profile         *Profile   `json:"profile"`
	Loading         bool       `json:"loading"`
	Error           *string    `json:"error"`
	IsAuthenticated bool       `json:"is_authenticated"`
}

// MarshalJSON writes absent values as null
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{
		User:            s.User,
		Profile:         s.Profile,
		Loading:         s.Loading,
		IsAuthenticated: s.IsAuthenticated(),
	}
	if s.Error != "" {
		msg := s.Error
		out.Error = &msg
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON
func (s *State) UnmarshalJSON(data []byte) error {
	var in stateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = State{User: in.User, Profile: in.Profile, Loading: in.Loading}
	if in.Error != nil {
		s.Error = *in.Error
	}
	return nil
}
