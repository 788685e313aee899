package version

// Current is the provisioner release version, without a "v" prefix.
var Current = "0.1.0"
