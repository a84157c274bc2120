// Package user provides the user account and private data entities.
package user

import (
	"strings"

	"github.com/osa030/vibestream/internal/domain/playlist"
	"github.com/osa030/vibestream/internal/domain/song"
)

// UserListDocument is the name of the document holding all accounts.
const UserListDocument = "users.json"

// Profile is the public identity of a logged-in user.
type Profile struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Account is a record in the global user list.
type Account struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Image        string `json:"image,omitempty"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

// Profile returns the public part of the account.
func (a *Account) Profile() Profile {
	return Profile{Email: a.Email, Name: a.Name, Image: a.Image}
}

// PrivateData is the per-user document mirrored to the remote store.
type PrivateData struct {
	Playlists       []playlist.Playlist `json:"playlists"`
	LikedSongs      []song.Song         `json:"likedSongs"`
	History         []song.Song         `json:"history"`
	FavoriteArtists []string            `json:"favoriteArtists"`
	UpdatedAt       int64               `json:"updatedAt"`
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DocumentName returns the private data document name for an email.
// The mapping is deterministic so every device resolves the same document.
func DocumentName(email string) string {
	r := strings.NewReplacer(".", "_", "@", "_")
	return "user_" + r.Replace(NormalizeEmail(email)) + ".json"
}
