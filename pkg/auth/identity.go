package auth

// SandboxKey is the shared demo credential. It never touches storage.
const SandboxKey = "tg_sandbox_demo"

// SandboxKeyID is the rate limit bucket every sandbox caller shares
const SandboxKeyID = "sandbox"

// Identity is the resolved caller behind a bearer credential
type Identity struct {
	KeyID     string
	UserID    string
	IsSandbox bool
}

// SandboxIdentity is returned for SandboxKey without any lookup
var SandboxIdentity = Identity{KeyID: SandboxKeyID, IsSandbox: true}
