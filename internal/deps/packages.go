package deps

// ChromePackages are the Debian-family packages headless Chrome needs,
// including CJK font coverage for rendering East Asian pages.
var ChromePackages = []string{
	"ca-certificates",
	"fonts-liberation",
	"libasound2",
	"libatk-bridge2.0-0",
	"libatk1.0-0",
	"libatspi2.0-0",
	"libc6",
	"libcairo2",
	"libcups2",
	"libdbus-1-3",
	"libdrm2",
	"libexpat1",
	"libgbm1",
	"libglib2.0-0",
	"libgtk-3-0",
	"libnspr4",
	"libnss3",
	"libpango-1.0-0",
	"libx11-6",
	"libxcb1",
	"libxcomposite1",
	"libxdamage1",
	"libxext6",
	"libxfixes3",
	"libxkbcommon0",
	"libxrandr2",
	"wget",
	"xdg-utils",
	"fonts-noto-cjk",
	"fonts-wqy-zenhei",
}
