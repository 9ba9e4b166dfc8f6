package vfs

import "strings"

// binaryExtensions mirrors original_source/forge/vfs/binary.py's curated
// extension table.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".tiff": true, ".svg": false, // svg is text
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true, ".m4a": true,
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true, ".rar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
	".db": true, ".sqlite": true, ".sqlite3": true, ".pickle": true, ".pkl": true,
	".iso": true, ".dmg": true, ".img": true,
	".uasset": true, ".umap": true, ".pak": true,
	".pdb": true, ".sym": true, ".debug": true,
	".o": true, ".a": true, ".class": true, ".jar": true, ".wasm": true,
	".node": true, ".pyc": true, ".pyo": true,
}

// IsBinaryPath reports whether path's extension is in the curated binary
// set. Files with no extension, or an extension not in the set, are
// treated as text.
func IsBinaryPath(path string) bool {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return false
	}
	ext := strings.ToLower(path[idx:])
	return binaryExtensions[ext]
}
