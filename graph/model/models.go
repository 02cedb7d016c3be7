package model

type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Born *int   `json:"born"`
}

type Book struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Published int      `json:"published"`
	AuthorID  string   `json:"-"`
	Author    *Author  `json:"author"`
	Genres    []string `json:"genres"`
}

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	PasswordHash  string `json:"-"`
	FavoriteGenre string `json:"favoriteGenre"`
}

type Token struct {
	Value string `json:"value"`
}

// BookFilter carries the optional arguments of allBooks.
type BookFilter struct {
	Author *string `json:"author"`
	Genre  *string `json:"genre"`
}

type NewBook struct {
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Published int      `json:"published"`
	Genres    []string `json:"genres"`
}

type EditAuthor struct {
	Name      string `json:"name"`
	SetBornTo int    `json:"setBornTo"`
}

type NewUser struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	FavoriteGenre string `json:"favoriteGenre"`
}

type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
