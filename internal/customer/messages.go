package customer

// Response messages
const (
	MsgSignUpSuccess    = "Customer registered successfully."
	MsgSignUpError      = "An error occurred during customer registration."
	MsgEmailTaken       = "This email is already registered."
	MsgLoginSuccess     = "Customer logged in successfully."
	MsgLoginFailed      = "Incorrect username or password."
	MsgLoginInactive    = "Customer account is not active."
	MsgLogoutSuccess    = "Customer logged out successfully."
	MsgLogoutError      = "An error occurred during logout."
	MsgProfileSuccess   = "Profile fetched successfully."
	MsgProfileError     = "An error occurred while fetching the profile."
	MsgProfileNotFound  = "Customer not found."
	MsgAddressAdded     = "Address added successfully."
	MsgAddressAddError  = "An error occurred while adding the address."
	MsgAddressFetched   = "Address fetched successfully."
	MsgAddressGetError  = "An error occurred while fetching the address."
	MsgAddressNotFound  = "Address not found."
	MsgViewRecorded     = "View recorded."
	MsgWhoAmI           = "/customer : I am Customer Service"
	MsgNotAuthorized    = "Not Authorized"
	MsgMissingAuthToken = "Authorization header missing or invalid"
)
