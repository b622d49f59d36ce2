package model

// Ownable is implemented by records that belong to exactly one user
type Ownable interface {
	OwnerID() string
}

// OwnerID implements Ownable
func (t *AccountToken) OwnerID() string { return t.UserID }

// OwnerID implements Ownable
func (t *RefreshToken) OwnerID() string { return t.UserID }

// OwnerID implements Ownable
func (b *BackupCode) OwnerID() string { return b.UserID }

// OwnerID implements Ownable
func (u *User) OwnerID() string { return u.ID }
