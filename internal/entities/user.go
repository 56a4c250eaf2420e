package entities

type User struct {
	ID       string `db:"id"`
	Login    string `db:"login"`
	Password string `db:"password"`
	Points   int64  `db:"points"`
}
