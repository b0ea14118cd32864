package accounts

// Account may authenticate against the dev relay and submit mail.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Address  string `json:"address"`
}
