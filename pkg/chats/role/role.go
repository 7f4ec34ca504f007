// Package role names who sent a message.
package role

// Role is the sender of a message. Tool marks a message carrying tool
// results back to the model.
type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
	Tool      Role = "tool"
)
