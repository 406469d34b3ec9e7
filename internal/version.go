package internal

// Version is the current wordaudio release
const Version = "0.4.0"
