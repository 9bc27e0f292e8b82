package deeplink

// App describes one supported UPI payment app. The scheme and package
// identifiers are data, not behavior: the builder only interpolates them.
type App struct {
	Key            string
	Name           string
	AndroidPackage string
	IOSScheme      string // custom scheme prefix up to and including the path, no query
}

var (
	GPay = App{
		Key:            "gpay",
		Name:           "Google Pay",
		AndroidPackage: "com.google.android.apps.nbu.paisa.user",
		IOSScheme:      "tez://upi/pay",
	}
	PhonePe = App{
		Key:            "phonepe",
		Name:           "PhonePe",
		AndroidPackage: "com.phonepe.app",
		IOSScheme:      "phonepe://pay",
	}
	Paytm = App{
		Key:            "paytm",
		Name:           "Paytm",
		AndroidPackage: "net.one97.paytm",
		IOSScheme:      "paytmmp://pay",
	}
	BHIM = App{
		Key:            "bhim",
		Name:           "BHIM",
		AndroidPackage: "in.org.npci.upiapp",
		IOSScheme:      "upi://pay",
	}
)

// Apps lists every supported app in display order.
var Apps = []App{GPay, PhonePe, Paytm, BHIM}

// AppByKey resolves an app from its wire key (e.g. "phonepe").
func AppByKey(key string) (App, bool) {
	for _, a := range Apps {
		if a.Key == key {
			return a, true
		}
	}
	return App{}, false
}
