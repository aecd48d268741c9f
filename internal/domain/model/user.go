package model

// ユーザー自体は認証サービス側の持ち物。ここではJWTのroleだけ扱う。
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)
