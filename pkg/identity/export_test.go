package identity

// Pick exposes interface selection to tests.
var Pick = pick
