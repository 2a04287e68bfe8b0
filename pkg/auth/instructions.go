package auth

import (
	"fmt"
	"strings"
)

// ShowKeySetupGuide explains how to obtain an API key and signing secret
func ShowKeySetupGuide() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("🔑 STREET VIEW STATIC API CREDENTIALS")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	fmt.Println("The downloader calls the Street View Static API metadata and image endpoints.")
	fmt.Println("Metadata lookups are free of charge; image requests are billed per request.")
	fmt.Println()

	fmt.Println("☁️  STEP 1: Create or pick a Google Cloud project")
	fmt.Println("   - Open https://console.cloud.google.com")
	fmt.Println("   - Enable billing on the project")
	fmt.Println()

	fmt.Println("🧩 STEP 2: Enable the API")
	fmt.Println("   - APIs & Services → Library → \"Street View Static API\" → Enable")
	fmt.Println()

	fmt.Println("🗝  STEP 3: Create an API key")
	fmt.Println("   - APIs & Services → Credentials → Create credentials → API key")
	fmt.Println("   - Restrict the key to the Street View Static API")
	fmt.Println()

	fmt.Println("✍️  STEP 4 (recommended): Copy the URL signing secret")
	fmt.Println("   - Google Maps Platform → Street View Static API → URL signing secret")
	fmt.Println("   - Signed requests are required above the unsigned daily quota")
	fmt.Println()

	fmt.Println("💡 TIPS:")
	fmt.Println("   • Use one profile per project: streetviewdl auth login --profile work")
	fmt.Println("   • STREETVIEWDL_API_KEY and STREETVIEWDL_SIGNING_SECRET override stored profiles")
	fmt.Println("   • Run with --metadata-only first to see how many images a run would request")
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// ShowQuickGuide is the one-line version of ShowKeySetupGuide
func ShowQuickGuide() {
	fmt.Println("\n🔑 Cloud console → APIs & Services → Credentials → API key (Street View Static API)")
	fmt.Println("   Optional: URL signing secret from the Street View Static API page")
	fmt.Println("   Type 'help' for detailed instructions")
}
